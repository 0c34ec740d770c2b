package providers

import (
	"github.com/samber/do/v2"

	"github.com/aloudapp/aloud-server/internal/auth"
	"github.com/aloudapp/aloud-server/internal/extract"
	"github.com/aloudapp/aloud-server/internal/logger"
	"github.com/aloudapp/aloud-server/internal/service"
)

// ProvideAuthService provides the owner authentication service.
func ProvideAuthService(i do.Injector) (*service.AuthService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewAuthService(storeHandle.Store, tokens, log), nil
}

// ProvideBookService provides catalog reads and chapter text extraction.
func ProvideBookService(i do.Injector) (*service.BookService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	registry := do.MustInvoke[*extract.Registry](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewBookService(storeHandle.Store, registry, log), nil
}
