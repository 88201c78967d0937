// Package storage keeps uploaded images on the local disk, S3 or MinIO.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/cppla/classifieds/config"
)

// Store saves objects and returns their public URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, key string) error
}

// New builds the store selected by StorageDriver.
func New(ctx context.Context, cfg config.AppConfig) (Store, error) {
	switch strings.ToLower(cfg.StorageDriver) {
	case "", "local":
		return NewLocalStore(cfg.StorageLocalDir, cfg.StoragePublicURL), nil
	case "s3":
		return NewS3Store(cfg)
	case "minio":
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

// ListingImageKey names a new object for a listing picture.
func ListingImageKey(listingID, ext string) string {
	return path.Join("products", listingID, uuid.NewString()+ext)
}

// AvatarKey names a new object for a user's avatar.
func AvatarKey(userID, ext string) string {
	return path.Join("avatars", userID+"-"+uuid.NewString()+ext)
}
