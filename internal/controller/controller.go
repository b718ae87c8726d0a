package controller

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tunesync/server/internal/repository/connection"
	"github.com/tunesync/server/internal/room"
	"github.com/tunesync/server/internal/service"
	"github.com/tunesync/server/pkg/validator"
	"github.com/tunesync/server/pkg/wsconn"
	"github.com/tunesync/server/pkg/wsrouter"
)

type iRoomService interface {
	CreateRoom(ctx context.Context) (service.CreateRoomResponse, error)
	JoinRoom(ctx context.Context, params *service.JoinRoomParams) (service.JoinRoomResponse, error)
	DisconnectMember(ctx context.Context, params *service.DisconnectMemberParams) (service.DisconnectMemberResponse, error)
	AddTrack(ctx context.Context, params *service.AddTrackParams) (service.AddTrackResponse, error)
	ReorderPlaylist(ctx context.Context, params *service.ReorderPlaylistParams) (service.ReorderPlaylistResponse, error)
	UpdatePlayerState(ctx context.Context, params *service.UpdatePlayerStateParams) (service.UpdatePlayerStateResponse, error)
	PlayTrack(ctx context.Context, params *service.PlayTrackParams) (service.PlayTrackResponse, error)
	GetSyncState(ctx context.Context, roomId string) (room.SyncState, error)
	DeleteRoom(ctx context.Context, params *service.DeleteRoomParams) (service.DeleteRoomResponse, error)
	GetRoomConns(roomId string) ([]*wsconn.Conn, error)
	GetSession(conn *wsconn.Conn) (connection.Session, error)
}

type controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	logger      *slog.Logger
	wsRouter    *wsrouter.WSRouter
	mediaDir    string
	emitLocks   *sync.Map
}

func NewController(roomService iRoomService, mediaDir string, logger *slog.Logger) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		validate:    validator.NewValidator(),
		logger:      logger,
		mediaDir:    mediaDir,
		emitLocks:   &sync.Map{},
	}
	c.wsRouter = c.buildWSRouter()

	return c
}

// emissionLock returns the room's fan-out mutex. A mutation handler
// holds it across the service call and every resulting broadcast, so
// members observe state changes in the order the room applied them.
func (c controller) emissionLock(roomId string) *sync.Mutex {
	mu, _ := c.emitLocks.LoadOrStore(roomId, &sync.Mutex{})

	return mu.(*sync.Mutex)
}

func (c controller) forgetEmissionLock(roomId string) {
	c.emitLocks.Delete(roomId)
}

func (c controller) generateTimeBasedId() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}
