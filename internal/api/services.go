package api

import "github.com/aloudapp/aloud-server/internal/service"

// Services bundles the application services the handlers call into.
type Services struct {
	Auth  *service.AuthService
	Books *service.BookService
}
