package images

import (
	"fmt"

	"github.com/aloudapp/aloud-server/internal/logger"
)

// Cover describes a stored book cover.
type Cover struct {
	Path     string // Filesystem path of the stored image
	Mime     string // Media type as declared inside the book file
	Hash     string // SHA256 of the stored bytes, for ETag validation
	BlurHash string // Compact placeholder; empty when the image could not be decoded
}

// Processor stores cover images pulled out of book files and computes
// their BlurHash placeholders.
type Processor struct {
	storage *Storage
	logger  *logger.Logger
}

// NewProcessor creates a new Processor instance.
func NewProcessor(storage *Storage, log *logger.Logger) *Processor {
	return &Processor{
		storage: storage,
		logger:  log,
	}
}

// Process stores cover image data for a book and computes its hash and
// BlurHash placeholder. Returns nil (no error) when the book has no cover.
// A cover the standard decoders cannot read is still stored and served
// as-is; only the placeholder is skipped.
func (p *Processor) Process(bookID string, data []byte, mime string) (*Cover, error) {
	if len(data) == 0 {
		p.logger.Debug("book has no embedded cover", "book_id", bookID)
		return nil, nil
	}

	if err := p.storage.Save(bookID, data); err != nil {
		return nil, fmt.Errorf("save cover: %w", err)
	}

	hash, err := p.storage.Hash(bookID)
	if err != nil {
		return nil, fmt.Errorf("hash cover: %w", err)
	}

	blurHash, err := ComputeBlurHash(data)
	if err != nil {
		// Some covers use encodings image.Decode cannot read (CMYK JPEG
		// and friends). Clients still get the raw bytes.
		p.logger.Warn("blurhash computation failed",
			"book_id", bookID,
			"mime", mime,
			"error", err,
		)
		blurHash = ""
	}

	p.logger.Debug("stored cover",
		"book_id", bookID,
		"size", len(data),
		"mime", mime,
		"hash", hash[:8]+"...",
	)

	return &Cover{
		Path:     p.storage.Path(bookID),
		Mime:     mime,
		Hash:     hash,
		BlurHash: blurHash,
	}, nil
}

// Remove deletes a book's stored cover. Missing covers are not an error.
func (p *Processor) Remove(bookID string) error {
	return p.storage.Delete(bookID)
}
