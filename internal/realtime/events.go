package realtime

// Control events consumed by the connection itself.
const (
	EventRoomJoin  = "room:join"
	EventRoomLeave = "room:leave"
)

// Named events shared across dashboard features.
const (
	EventMessageNew            = "message:new"
	EventMessageRead           = "message:read"
	EventNotificationNew       = "notification:new"
	EventAnnouncementBroadcast = "announcement:broadcast"
	EventAnnouncementAck       = "announcement:acknowledge"
	EventDocumentChange        = "document:change"
	EventDocumentCursor        = "document:cursor"
	EventAttendanceMark        = "attendance:mark"
	EventAttendanceMarked      = "attendance:marked"
	EventExamAlert             = "exam:alert"
	EventExamSessionUpdate     = "exam:session-update"
	EventMeetingRequest        = "meeting:request"
	EventMeetingRespond        = "meeting:respond"
	EventGradeUpdated          = "grade:updated"
	EventUserOnline            = "user:online"
	EventTypingStart           = "typing:start"
	EventTypingStop            = "typing:stop"
)

// KnownEvents returns the named events features subscribe to. Used by the
// tail CLI to watch everything; the registry itself accepts any name.
func KnownEvents() []string {
	return []string{
		EventMessageNew,
		EventMessageRead,
		EventNotificationNew,
		EventAnnouncementBroadcast,
		EventAnnouncementAck,
		EventDocumentChange,
		EventDocumentCursor,
		EventAttendanceMark,
		EventAttendanceMarked,
		EventExamAlert,
		EventExamSessionUpdate,
		EventMeetingRequest,
		EventMeetingRespond,
		EventGradeUpdated,
		EventUserOnline,
		EventTypingStart,
		EventTypingStop,
	}
}
