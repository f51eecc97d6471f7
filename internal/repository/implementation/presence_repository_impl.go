package implementation

import (
	"context"
	"encoding/json"

	"classlive-be/internal/apperr"
	"classlive-be/internal/entity"
	"classlive-be/internal/repository/contract"
	"classlive-be/pkg/docstore"
)

const presenceCollection = "presence"

type presenceRepository struct {
	store docstore.Store
}

func NewPresenceRepository(store docstore.Store) contract.PresenceRepository {
	return &presenceRepository{store: store}
}

func (r *presenceRepository) Upsert(ctx context.Context, presence *entity.Presence) error {
	doc, err := presenceToDoc(presence)
	if err != nil {
		return err
	}

	existing, err := r.store.Query(ctx, presenceCollection, docstore.Eq("userId", presence.UserId))
	if err != nil {
		return &apperr.TransientStoreError{Op: "query presence", Err: err}
	}

	if len(existing) > 0 {
		id, _ := existing[0]["_id"].(string)
		if err := r.store.Update(ctx, presenceCollection, id, doc); err != nil {
			return &apperr.TransientStoreError{Op: "update presence", Err: err}
		}
		return nil
	}

	if _, err := r.store.Create(ctx, presenceCollection, doc); err != nil {
		return &apperr.TransientStoreError{Op: "create presence", Err: err}
	}
	return nil
}

func (r *presenceRepository) Get(ctx context.Context, userId string) (*entity.Presence, error) {
	records, err := r.GetMany(ctx, []string{userId})
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

func (r *presenceRepository) GetMany(ctx context.Context, userIds []string) ([]*entity.Presence, error) {
	// Default everyone to offline first, then overlay stored records. A user
	// who never heartbeated is offline, not a lookup miss.
	byId := make(map[string]*entity.Presence, len(userIds))
	result := make([]*entity.Presence, 0, len(userIds))
	for _, userId := range userIds {
		record := entity.OfflinePresence(userId)
		byId[userId] = record
		result = append(result, record)
	}

	for _, userId := range userIds {
		docs, err := r.store.Query(ctx, presenceCollection, docstore.Eq("userId", userId))
		if err != nil {
			return nil, &apperr.TransientStoreError{Op: "query presence", Err: err}
		}
		if len(docs) == 0 {
			continue
		}
		stored, err := presenceFromDoc(docs[0])
		if err != nil {
			continue
		}
		*byId[userId] = *stored
	}
	return result, nil
}

func presenceToDoc(presence *entity.Presence) (docstore.Document, error) {
	raw, err := json.Marshal(presence)
	if err != nil {
		return nil, err
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func presenceFromDoc(doc docstore.Document) (*entity.Presence, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var presence entity.Presence
	if err := json.Unmarshal(raw, &presence); err != nil {
		return nil, err
	}
	if presence.Status == "" {
		presence.Status = entity.PresenceOffline
	}
	return &presence, nil
}
