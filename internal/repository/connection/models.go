package connection

// Session ties a live websocket connection to the member identity it
// carries and the room that identity belongs to. A member belongs to
// exactly one room at a time.
type Session struct {
	MemberId string
	RoomId   string
}
