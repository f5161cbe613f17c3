package repository

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/status"
)

var ErrInvalidPath = errors.New("invalid document path")

// FirestoreStore удаляет обработанные документы из Firestore.
type FirestoreStore struct {
	client *firestore.Client
	logger *zap.Logger
}

func NewFirestoreStore(client *firestore.Client, logger *zap.Logger) *FirestoreStore {
	return &FirestoreStore{
		client: client,
		logger: logger.Named("firestore_store"),
	}
}

// Delete removes the document at docPath ("collection/id"). Deleting a
// document that no longer exists is not an error.
func (s *FirestoreStore) Delete(ctx context.Context, docPath string) error {
	ref := s.client.Doc(docPath)
	if ref == nil {
		return fmt.Errorf("%w: %q", ErrInvalidPath, docPath)
	}
	if _, err := ref.Delete(ctx); err != nil {
		s.logger.Error("Firestore delete failed",
			zap.String("path", docPath),
			zap.Stringer("code", status.Code(err)),
			zap.Error(err),
		)
		return fmt.Errorf("firestore delete %s: %w", docPath, err)
	}
	return nil
}
