package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/project"
)

const editorReadLimit = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Editor message types
const (
	msgEdit          = "edit"
	msgAddSection    = "add_section"
	msgRemoveSection = "remove_section"
	msgAddRow        = "add_row"
	msgRemoveRow     = "remove_row"
	msgProviders     = "providers"
	msgSave          = "save"

	msgState = "state"
	msgError = "error"
	msgSaved = "saved"
)

// EditorMessage is a command sent by an editor client
type EditorMessage struct {
	Type      string              `json:"type"`
	SectionID estimate.SectionID  `json:"sectionId,omitempty"`
	RowIndex  int                 `json:"rowIndex"`
	Field     estimate.Field      `json:"field,omitempty"`
	Value     estimate.Value      `json:"value,omitempty"`
	Providers []estimate.Provider `json:"providers,omitempty"`
}

// EditorEvent is sent to the client: the full estimate view after each
// change, or an error message
type EditorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	*models.EstimateView
}

// editorSession holds one client's working copy of a project estimate
type editorSession struct {
	projectID int64
	revision  string
	est       *estimate.Estimate
	canSave   bool
}

func (s *Server) handleEditorWS(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}

	est, p, err := s.projects.LoadEstimate(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "load estimate")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(editorReadLimit)

	session := &editorSession{
		projectID: id,
		revision:  p.EstimateRevision,
		est:       est,
		canSave:   s.authMiddleware.Allowed(r.Context(), models.PermProjectsWrite),
	}

	slog.Info("editor websocket connected", "project_id", id, "revision", session.revision)

	if err := s.sendEditorEvent(conn, s.editorState(session, msgState)); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "error", err)
			}
			break
		}

		var msg EditorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("invalid message format", "error", err)
			if err := s.sendEditorError(conn, "invalid message format"); err != nil {
				break
			}
			continue
		}

		event := s.applyEditorMessage(r, session, msg)
		if err := s.sendEditorEvent(conn, event); err != nil {
			break
		}
	}

	slog.Info("editor websocket disconnected", "project_id", id)
}

// applyEditorMessage runs one command against the session and returns the
// event to send back
func (s *Server) applyEditorMessage(r *http.Request, session *editorSession, msg EditorMessage) EditorEvent {
	cat := s.projects.Catalog()
	var err error

	switch msg.Type {
	case msgEdit:
		_, err = session.est.Apply(estimate.Edit{
			SectionID: msg.SectionID,
			RowIndex:  msg.RowIndex,
			Field:     msg.Field,
			Value:     msg.Value,
		})
	case msgAddSection:
		err = session.est.AddSection(cat, msg.SectionID)
	case msgRemoveSection:
		err = session.est.RemoveSection(msg.SectionID)
	case msgAddRow:
		err = session.est.AddRow(msg.SectionID)
	case msgRemoveRow:
		err = session.est.RemoveRow(msg.SectionID, msg.RowIndex)
	case msgProviders:
		var check estimate.ProviderValidation
		check, err = session.est.SetProviders(msg.SectionID, msg.RowIndex, msg.Providers)
		if errors.Is(err, estimate.ErrInvalidProviders) {
			return EditorEvent{Type: msgError, Message: check.Message}
		}
	case msgSave:
		return s.saveEditorSession(r, session)
	default:
		return EditorEvent{Type: msgError, Message: fmt.Sprintf("unknown message type %q", msg.Type)}
	}

	if err != nil {
		return EditorEvent{Type: msgError, Message: err.Error()}
	}
	return s.editorState(session, msgState)
}

func (s *Server) saveEditorSession(r *http.Request, session *editorSession) EditorEvent {
	if !session.canSave {
		return EditorEvent{Type: msgError, Message: "client does not have required permission: " + models.PermProjectsWrite}
	}

	p, err := s.projects.SaveEstimate(r.Context(), session.projectID, session.est)
	if err != nil {
		var providersErr *project.InvalidProvidersError
		if errors.As(err, &providersErr) || errors.Is(err, project.ErrProjectNotFound) {
			return EditorEvent{Type: msgError, Message: err.Error()}
		}
		slog.Error("failed to save estimate", "project_id", session.projectID, "error", err)
		return EditorEvent{Type: msgError, Message: "failed to save estimate"}
	}

	session.revision = p.EstimateRevision
	return s.editorState(session, msgSaved)
}

func (s *Server) editorState(session *editorSession, eventType string) EditorEvent {
	return EditorEvent{
		Type:         eventType,
		EstimateView: s.projects.View(session.projectID, session.revision, session.est),
	}
}

func (s *Server) sendEditorEvent(conn *websocket.Conn, event EditorEvent) error {
	if err := conn.WriteJSON(event); err != nil {
		slog.Debug("failed to send editor event", "error", err)
		return err
	}
	return nil
}

func (s *Server) sendEditorError(conn *websocket.Conn, message string) error {
	return s.sendEditorEvent(conn, EditorEvent{Type: msgError, Message: message})
}
