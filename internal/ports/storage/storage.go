package storage

import (
	"context"
	"io"
)

// Object es el resultado de un upload: el path estable y una URL de acceso (posiblemente firmada).
type Object struct {
	Path string
	URL  string
}

// Storage es el colaborador de binarios (fotos/videos/adjuntos).
// AccessURL puede devolver URLs de vida corta; el mapper las refresca al leer.
type Storage interface {
	Upload(ctx context.Context, blob io.Reader, pathHint, contentType string) (Object, error)
	AccessURL(ctx context.Context, storedPath string) (string, error)
	Delete(ctx context.Context, storedPath string) error
}
