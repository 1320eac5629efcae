package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/repository"
)

// NoteService manages the private notes a user keeps about other users.
type NoteService struct {
	repo   repository.NoteRepository
	logger *slog.Logger
}

// NewNoteService creates a NoteService.
func NewNoteService(repo repository.NoteRepository, logger *slog.Logger) *NoteService {
	return &NoteService{repo: repo, logger: logger}
}

// List returns from's notes about to. The result is never nil.
func (s *NoteService) List(ctx context.Context, from, to string) ([]model.Note, error) {
	to, err := targetID(to, "tagferId")
	if err != nil {
		return nil, err
	}
	notes, err := s.repo.ListNotes(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("service/note: listing notes: %w", err)
	}
	if notes == nil {
		notes = []model.Note{}
	}
	return notes, nil
}

// Create stores a new note and returns its id.
func (s *NoteService) Create(ctx context.Context, from, to, content string) (string, error) {
	to, err := targetID(to, "tagferId")
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", apperror.ValidationFailed("content", "content is required")
	}

	note := &model.Note{FromID: from, ToID: to, Content: content}
	if err := s.repo.CreateNote(ctx, note); err != nil {
		return "", fmt.Errorf("service/note: creating note: %w", err)
	}
	s.logger.Debug("note created", slog.String("from", from), slog.String("to", to), slog.String("noteId", note.ID))
	return note.ID, nil
}

// Update replaces the content of an existing note.
func (s *NoteService) Update(ctx context.Context, from, to, noteID, content string) error {
	to, err := targetID(to, "tagferId")
	if err != nil {
		return err
	}
	if noteID == "" {
		return apperror.ValidationFailed("noteId", "noteId is required")
	}
	if content == "" {
		return apperror.ValidationFailed("content", "content is required")
	}

	note := &model.Note{ID: noteID, FromID: from, ToID: to, Content: content}
	if err := s.repo.UpdateNote(ctx, note); err != nil {
		return fmt.Errorf("service/note: updating note %s: %w", noteID, err)
	}
	return nil
}

// Delete removes one note.
func (s *NoteService) Delete(ctx context.Context, from, to, noteID string) error {
	to, err := targetID(to, "tagferId")
	if err != nil {
		return err
	}
	if noteID == "" {
		return apperror.ValidationFailed("noteId", "noteId is required")
	}
	if err := s.repo.DeleteNote(ctx, from, to, noteID); err != nil {
		return fmt.Errorf("service/note: deleting note %s: %w", noteID, err)
	}
	return nil
}
