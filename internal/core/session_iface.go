package core

import "github.com/dkeye/groupcall/internal/domain"

// SessionID identifies one signaling connection.
type SessionID string

// UserID is the participant id bound to a connection.
func (sid SessionID) UserID() domain.UserID { return domain.UserID(sid) }
