package controller

import (
	"context"
	"io"

	"pet-health-sync/internal/apperr"
	"pet-health-sync/internal/domain/records"
	"pet-health-sync/internal/domain/schema"
)

type UploadInput struct {
	CanineID    string
	Type        schema.MediaType
	Blob        io.Reader
	PathHint    string
	ContentType string
	Caption     string
}

// UploadMedia sube el binario al storage y crea el MediaItem que lo apunta.
// Si el create falla, el blob se borra (best-effort).
func (c *Controller) UploadMedia(ctx context.Context, in UploadInput) (records.Record, error) {
	if c.storage == nil {
		return records.Record{}, ErrStorageNotConfigured
	}
	// se valida antes de subir nada
	if _, ok := c.store.GetByID(schema.EntityCanineProfile, c.resolve(schema.EntityCanineProfile, in.CanineID)); !ok {
		return records.Record{}, apperr.Constraint(string(schema.EntityMediaItem), "canineId", string(schema.EntityCanineProfile)+"/"+in.CanineID, "parent does not exist")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	obj, err := c.storage.Upload(callCtx, in.Blob, in.PathHint, in.ContentType)
	cancel()
	if err != nil {
		return records.Record{}, remoteErr("upload", schema.EntityMediaItem, "", err)
	}

	fields := map[string]any{
		"canineId":    c.resolve(schema.EntityCanineProfile, in.CanineID),
		"type":        string(in.Type),
		"uri":         obj.URL,
		"storagePath": obj.Path,
	}
	if in.Caption != "" {
		fields["caption"] = in.Caption
	}

	rec, err := c.Create(ctx, schema.EntityMediaItem, fields)
	if err != nil {
		if derr := c.storage.Delete(ctx, obj.Path); derr != nil {
			c.log.Warn("orphan blob after failed media create", map[string]any{"path": obj.Path, "error": derr})
		}
		return records.Record{}, err
	}
	return rec, nil
}
