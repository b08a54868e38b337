package chatpilot

import (
	"context"

	"go.uber.org/zap"

	"chatpilot/model"
)

// RAGResolver turns local file paths and knowledge-base names into the dual
// reference payload a grounded completion needs: the minimal shape for the
// completion call and the richer records stored on the persisted message.
type RAGResolver struct {
	files     FileAPI
	knowledge KnowledgeAPI
	log       *zap.Logger
}

// NewRAGResolver wires the resolver to its upload and knowledge
// collaborators.
func NewRAGResolver(files FileAPI, knowledge KnowledgeAPI, log *zap.Logger) *RAGResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &RAGResolver{files: files, knowledge: knowledge, log: log}
}

// Resolve uploads each file and expands each collection name to its member
// file ids. References that fail to resolve are skipped with a warning, never
// aborting the request; the caller proceeds with whatever resolved, possibly
// nothing.
func (r *RAGResolver) Resolve(ctx context.Context, filePaths, collections []string) ([]model.APIFileRef, []model.StorageRef) {
	var apiRefs []model.APIFileRef
	var storageRefs []model.StorageRef

	for _, path := range filePaths {
		uploaded, err := r.files.Upload(ctx, path)
		if err != nil {
			r.log.Warn("skipping RAG file", zap.String("path", path), zap.Error(err))
			continue
		}
		apiRefs = append(apiRefs, model.APIFileRef{Type: "file", ID: uploaded.ID})
		storageRefs = append(storageRefs, model.StorageRef{
			Type: "file",
			ID:   uploaded.ID,
			Name: uploaded.Filename,
			Size: uploaded.Size,
			Mime: uploaded.Mime,
		})
	}

	if len(collections) == 0 {
		return apiRefs, storageRefs
	}

	available, err := r.knowledge.List(ctx)
	if err != nil {
		r.log.Warn("knowledge list unavailable, skipping all collections", zap.Error(err))
		return apiRefs, storageRefs
	}

	for _, name := range collections {
		// Exact, case-sensitive name match.
		var match *model.KnowledgeBase
		for i := range available {
			if available[i].Name == name {
				match = &available[i]
				break
			}
		}
		if match == nil {
			r.log.Warn("skipping unknown knowledge collection", zap.String("name", name))
			continue
		}

		detail, err := r.knowledge.Get(ctx, match.ID)
		if err != nil {
			r.log.Warn("skipping knowledge collection", zap.String("name", name), zap.Error(err))
			continue
		}
		fileIDs := make([]string, len(detail.Files))
		for i, f := range detail.Files {
			fileIDs[i] = f.ID
		}
		apiRefs = append(apiRefs, model.APIFileRef{
			Type: "collection",
			ID:   detail.ID,
			Data: &model.CollectionData{FileIDs: fileIDs},
		})
		storageRefs = append(storageRefs, model.StorageRef{
			Type: "collection",
			ID:   detail.ID,
			Name: detail.Name,
		})
	}
	return apiRefs, storageRefs
}
