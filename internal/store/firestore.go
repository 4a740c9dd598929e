package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps a client created by the Firebase Admin SDK
// (firebase.App.Firestore). The caller owns the client lifecycle.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

var _ Store = (*FirestoreStore)(nil)

type firestoreDocument struct {
	snap *firestore.DocumentSnapshot
}

func (d firestoreDocument) ID() string {
	return d.snap.Ref.ID
}

func (d firestoreDocument) DataTo(v any) error {
	if err := d.snap.DataTo(v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.snap.Ref.ID, err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, mapFirestoreError(err))
	}
	return firestoreDocument{snap: snap}, nil
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validateQuery(q); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	query := s.client.Collection(collection).Query
	for _, f := range q.Filters {
		query = query.WherePath(firestore.FieldPath(f.Path), string(f.Op), f.Value)
	}
	if q.OrderBy != nil {
		direction := firestore.Asc
		if q.OrderBy.Desc {
			direction = firestore.Desc
		}
		query = query.OrderByPath(firestore.FieldPath(q.OrderBy.Path), direction)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, mapFirestoreError(err))
	}
	docs := make([]Document, len(snaps))
	for i, snap := range snaps {
		docs[i] = firestoreDocument{snap: snap}
	}
	return docs, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data any) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, mapFirestoreError(err))
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, updates ...Update) error {
	fsUpdates := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		value := u.Value
		if u.Delete {
			value = firestore.Delete
		}
		fsUpdates = append(fsUpdates, firestore.Update{FieldPath: firestore.FieldPath(u.Path), Value: value})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, fsUpdates); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, mapFirestoreError(err))
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, mapFirestoreError(err))
	}
	return nil
}

// Ping reads a document that never exists; NotFound proves the backend answered.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection("_health").Doc("ping").Get(ctx)
	if err == nil || status.Code(err) == codes.NotFound {
		return nil
	}
	return fmt.Errorf("ping firestore: %w", err)
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func mapFirestoreError(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case codes.FailedPrecondition:
		// Firestore reports a missing composite index this way.
		return fmt.Errorf("%w: %v", ErrIndexRequired, err)
	default:
		return err
	}
}
