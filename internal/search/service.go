package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// SimilarIncidents finds incidents resembling the given text, used to
// surface likely duplicates while a new report is still being written.
func (s *Service) SimilarIncidents(text string, limit int) Response {
	if limit <= 0 {
		limit = 5
	}
	return s.Search(Query{Text: text, FilterType: ResultIncident, Limit: limit})
}

// IndexIncident indexes an incident (fire-and-forget to Meilisearch).
func (s *Service) IndexIncident(record IncidentRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexIncident(record); err != nil {
			log.Printf("search: index incident %s: %v", record.ID, err)
		}
	}()
}

// IndexIdea indexes an idea (fire-and-forget to Meilisearch).
func (s *Service) IndexIdea(record IdeaRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexIdea(record); err != nil {
			log.Printf("search: index idea %s: %v", record.ID, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	incidents, ideas, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if len(incidents) > 0 {
		if err := s.meili.IndexIncidents(incidents); err != nil {
			log.Printf("search: reindex incidents: %v", err)
		}
	}
	if len(ideas) > 0 {
		if err := s.meili.IndexIdeas(ideas); err != nil {
			log.Printf("search: reindex ideas: %v", err)
		}
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
