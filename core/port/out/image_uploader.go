package out

import "context"

// ImageUploader pushes card images to the chat platform and returns the
// platform image key referenced from interactive cards.
type ImageUploader interface {
	UploadImage(ctx context.Context, png []byte) (string, error)
}
