package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/internal/service"
	"github.com/tunesync/server/pkg/wsconn"
	"github.com/tunesync/server/pkg/wsrouter"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type EmptyInput struct{}

// decode adapts a typed handler to the router, unmarshalling and
// validating the payload first. Validation failures are answered on the
// connection and never reach the handler.
func decode[T any](c *controller, fn func(ctx context.Context, conn *wsconn.Conn, input T) error) wsrouter.HandlerFunc {
	return func(ctx context.Context, conn *wsconn.Conn, payload json.RawMessage) error {
		var input T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &input); err != nil {
				return fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		if validationErrors, ok := c.validate.Validate(input); !ok {
			return c.writeToConn(ctx, conn, &Output{
				Type: "ERROR",
				Payload: map[string]any{
					"message":           "validation failed",
					"validation_errors": validationErrors,
				},
			})
		}

		return fn(ctx, conn, input)
	}
}

func (c *controller) buildWSRouter() *wsrouter.WSRouter {
	r := wsrouter.New()

	r.Use(c.wsRequestIdMw())
	r.Use(c.wsLoggingMw())

	r.Handle("ALIVE", decode(c, c.handleAlive))
	r.Handle("CREATE_ROOM", decode(c, c.handleCreateRoom))
	r.Handle("JOIN_ROOM", decode(c, c.handleJoinRoom))
	r.Handle("ADD_SONG", decode(c, c.handleAddSong))
	r.Handle("REORDER_PLAYLIST", decode(c, c.handleReorderPlaylist))
	r.Handle("PLAY", decode(c, c.handlePlay))
	r.Handle("PAUSE", decode(c, c.handlePause))
	r.Handle("PLAY_TRACK", decode(c, c.handlePlayTrack))
	r.Handle("REQUEST_SYNC", decode(c, c.handleRequestSync))
	r.Handle("DELETE_ROOM", decode(c, c.handleDeleteRoom))

	r.HandleError(c.handleWSError)

	return r
}

// handleWS upgrades the connection and serves it until it drops. The
// disconnect cascade always runs, whatever ended the read loop.
func (c controller) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	conn := wsconn.New(ws)
	defer conn.Close()

	err = c.wsRouter.ServeConn(r.Context(), conn)
	c.logger.InfoContext(r.Context(), "connection closed", "error", err)

	c.disconnect(r.Context(), conn)
}

func (c controller) disconnect(ctx context.Context, conn *wsconn.Conn) {
	session, err := c.roomService.GetSession(conn)
	if err != nil {
		// connection never joined a room
		return
	}

	mu := c.emissionLock(session.RoomId)
	mu.Lock()
	defer mu.Unlock()

	resp, err := c.roomService.DisconnectMember(ctx, &service.DisconnectMemberParams{Conn: conn})
	if err != nil {
		return
	}

	if resp.IsRoomDeleted {
		c.forgetEmissionLock(session.RoomId)
		return
	}

	c.broadcast(ctx, resp.Conns, &Output{
		Type: "USER_LEFT",
		Payload: map[string]any{
			"member_id": resp.MemberId,
		},
	})
	c.broadcast(ctx, resp.Conns, &Output{
		Type:    "UPDATE_USERS",
		Payload: map[string]any{"members": resp.Members},
	})
}

func (c controller) handleWSError(ctx context.Context, conn *wsconn.Conn, err error) {
	c.logger.InfoContext(ctx, "websocket handler error", "error", err)

	message := "internal error"
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		message = "room not found"
	case errors.Is(err, room.ErrIndexOutOfRange):
		message = "index out of range"
	case errors.Is(err, room.ErrMembersLimitReached):
		message = "members limit reached"
	case errors.Is(err, room.ErrPlaylistLimitReached):
		message = "playlist limit reached"
	case errors.Is(err, service.ErrMediaResolutionFailed):
		message = "failed to store track"
	case errors.Is(err, room.ErrInvariantViolation):
		message = "operation rejected"
	}

	c.writeToConn(ctx, conn, &Output{
		Type:    "ERROR",
		Payload: map[string]any{"message": message},
	})
}

func (c controller) handleAlive(_ context.Context, _ *wsconn.Conn, _ EmptyInput) error {
	return nil
}

func (c controller) handleCreateRoom(ctx context.Context, conn *wsconn.Conn, _ EmptyInput) error {
	resp, err := c.roomService.CreateRoom(ctx)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	return c.writeToConn(ctx, conn, &Output{
		Type:    "ROOM_CREATED",
		Payload: map[string]any{"room_id": resp.RoomId},
	})
}

type JoinRoomInput struct {
	RoomId   string `json:"room_id" validate:"required"`
	Username string `json:"username" validate:"required,min=1,max=32"`
}

func (c controller) handleJoinRoom(ctx context.Context, conn *wsconn.Conn, input JoinRoomInput) error {
	mu := c.emissionLock(input.RoomId)
	mu.Lock()
	defer mu.Unlock()

	joinRoomResp, err := c.roomService.JoinRoom(ctx, &service.JoinRoomParams{
		RoomId:   input.RoomId,
		Username: input.Username,
		Conn:     conn,
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	if err := c.writeToConn(ctx, conn, &Output{
		Type: "ROOM_JOINED",
		Payload: map[string]any{
			"member_id": joinRoomResp.JoinedMember.Id,
			"room":      joinRoomResp.State,
		},
	}); err != nil {
		return fmt.Errorf("failed to write to conn: %w", err)
	}

	others := make([]*wsconn.Conn, 0, len(joinRoomResp.Conns))
	for _, other := range joinRoomResp.Conns {
		if other != conn {
			others = append(others, other)
		}
	}

	c.broadcast(ctx, others, &Output{
		Type: "USER_JOINED",
		Payload: map[string]any{
			"joined_member": joinRoomResp.JoinedMember,
		},
	})
	c.broadcast(ctx, joinRoomResp.Conns, &Output{
		Type:    "UPDATE_USERS",
		Payload: map[string]any{"members": joinRoomResp.State.Members},
	})

	return nil
}

type AddSongInput struct {
	Name    string `json:"name" validate:"required,min=1,max=256"`
	URL     string `json:"url"`
	Payload []byte `json:"payload"`
}

func (c controller) handleAddSong(ctx context.Context, conn *wsconn.Conn, input AddSongInput) error {
	session, err := c.roomService.GetSession(conn)
	if err != nil {
		return room.ErrRoomNotFound
	}

	if input.URL == "" && len(input.Payload) == 0 {
		return c.writeToConn(ctx, conn, &Output{
			Type:    "ERROR",
			Payload: map[string]any{"message": "either url or payload is required"},
		})
	}

	mu := c.emissionLock(session.RoomId)
	mu.Lock()
	defer mu.Unlock()

	addTrackResp, err := c.roomService.AddTrack(ctx, &service.AddTrackParams{
		RoomId:   session.RoomId,
		SenderId: session.MemberId,
		Name:     input.Name,
		URL:      input.URL,
		Payload:  input.Payload,
	})
	if err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	c.broadcast(ctx, addTrackResp.Conns, &Output{
		Type: "TRACK_ADDED",
		Payload: map[string]any{
			"added_track": addTrackResp.AddedTrack,
			"index":       addTrackResp.Index,
		},
	})
	c.broadcast(ctx, addTrackResp.Conns, &Output{
		Type:    "UPDATE_PLAYLIST",
		Payload: map[string]any{"playlist": addTrackResp.Playlist},
	})

	return nil
}

type ReorderPlaylistInput struct {
	OldIndex int `json:"old_index" validate:"gte=0"`
	NewIndex int `json:"new_index" validate:"gte=0"`
}

func (c controller) handleReorderPlaylist(ctx context.Context, conn *wsconn.Conn, input ReorderPlaylistInput) error {
	session, err := c.roomService.GetSession(conn)
	if err != nil {
		return room.ErrRoomNotFound
	}

	mu := c.emissionLock(session.RoomId)
	mu.Lock()
	defer mu.Unlock()

	reorderResp, err := c.roomService.ReorderPlaylist(ctx, &service.ReorderPlaylistParams{
		RoomId:   session.RoomId,
		OldIndex: input.OldIndex,
		NewIndex: input.NewIndex,
	})
	if err != nil {
		return fmt.Errorf("failed to reorder playlist: %w", err)
	}

	c.broadcast(ctx, reorderResp.Conns, &Output{
		Type:    "UPDATE_PLAYLIST",
		Payload: map[string]any{"playlist": reorderResp.Playlist},
	})

	return nil
}

type PlayerStateInput struct {
	Position float64 `json:"position" validate:"gte=0"`
}

func (c controller) handlePlay(ctx context.Context, conn *wsconn.Conn, input PlayerStateInput) error {
	return c.updatePlayerState(ctx, conn, true, input.Position)
}

func (c controller) handlePause(ctx context.Context, conn *wsconn.Conn, input PlayerStateInput) error {
	return c.updatePlayerState(ctx, conn, false, input.Position)
}

func (c controller) updatePlayerState(ctx context.Context, conn *wsconn.Conn, isPlaying bool, position float64) error {
	session, err := c.roomService.GetSession(conn)
	if err != nil {
		return room.ErrRoomNotFound
	}

	mu := c.emissionLock(session.RoomId)
	mu.Lock()
	defer mu.Unlock()

	updateResp, err := c.roomService.UpdatePlayerState(ctx, &service.UpdatePlayerStateParams{
		RoomId:    session.RoomId,
		IsPlaying: isPlaying,
		Position:  position,
	})
	if err != nil {
		return fmt.Errorf("failed to update player state: %w", err)
	}

	c.broadcast(ctx, updateResp.Conns, &Output{
		Type:    "PLAYER_STATE_UPDATED",
		Payload: map[string]any{"player": updateResp.Player},
	})

	return nil
}

type PlayTrackInput struct {
	Index    int     `json:"index" validate:"gte=0"`
	Position float64 `json:"position" validate:"gte=0"`
}

func (c controller) handlePlayTrack(ctx context.Context, conn *wsconn.Conn, input PlayTrackInput) error {
	session, err := c.roomService.GetSession(conn)
	if err != nil {
		return room.ErrRoomNotFound
	}

	mu := c.emissionLock(session.RoomId)
	mu.Lock()
	defer mu.Unlock()

	playTrackResp, err := c.roomService.PlayTrack(ctx, &service.PlayTrackParams{
		RoomId:   session.RoomId,
		Index:    input.Index,
		Position: input.Position,
		Autoplay: true,
	})
	if err != nil {
		return fmt.Errorf("failed to play track: %w", err)
	}

	c.broadcast(ctx, playTrackResp.Conns, &Output{
		Type:    "PLAYER_TRACK_UPDATED",
		Payload: map[string]any{"player": playTrackResp.Player},
	})

	return nil
}

func (c controller) handleRequestSync(ctx context.Context, conn *wsconn.Conn, _ EmptyInput) error {
	session, err := c.roomService.GetSession(conn)
	if err != nil {
		return room.ErrRoomNotFound
	}

	state, err := c.roomService.GetSyncState(ctx, session.RoomId)
	if err != nil {
		return fmt.Errorf("failed to get sync state: %w", err)
	}

	return c.writeToConn(ctx, conn, &Output{
		Type:    "SYNC_PLAYBACK",
		Payload: state,
	})
}

func (c controller) handleDeleteRoom(ctx context.Context, conn *wsconn.Conn, _ EmptyInput) error {
	session, err := c.roomService.GetSession(conn)
	if err != nil {
		return room.ErrRoomNotFound
	}

	mu := c.emissionLock(session.RoomId)
	mu.Lock()
	defer mu.Unlock()

	deleteResp, err := c.roomService.DeleteRoom(ctx, &service.DeleteRoomParams{RoomId: session.RoomId})
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	c.broadcast(ctx, deleteResp.Conns, &Output{
		Type:    "ROOM_DELETED",
		Payload: map[string]any{"room_id": session.RoomId},
	})

	for _, memberConn := range deleteResp.Conns {
		memberConn.WriteCloseMessage(4000, "room deleted")
		memberConn.Close()
	}

	c.forgetEmissionLock(session.RoomId)

	return nil
}

// PublishSync is the broadcast scheduler's sink: one periodic corrected
// position pushed to every member of a playing room. Runs outside the
// emission lock: a mutation handler may hold it while waiting for the
// previous scheduler to drain.
func (c controller) PublishSync(roomId string, state room.SyncState) {
	conns, err := c.roomService.GetRoomConns(roomId)
	if err != nil {
		return
	}

	c.broadcast(context.Background(), conns, &Output{
		Type:    "SYNC_PLAYBACK",
		Payload: state,
	})
}

func (c controller) writeToConn(ctx context.Context, conn *wsconn.Conn, output *Output) error {
	if err := conn.WriteJSON(output); err != nil {
		c.logger.InfoContext(ctx, "failed to write to conn", "type", output.Type, "error", err)
		return err
	}

	return nil
}

func (c controller) broadcast(ctx context.Context, conns []*wsconn.Conn, output *Output) {
	for _, conn := range conns {
		if err := conn.WriteJSON(output); err != nil {
			c.logger.InfoContext(ctx, "failed to broadcast to conn", "type", output.Type, "error", err)
		}
	}
}
