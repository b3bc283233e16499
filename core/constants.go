package core

const Version = "0.3.0"

const (
	DefaultSessionsDir       = "sessions"
	DefaultDataAcceptTimeout = 30 // seconds
	DefaultClientTimeout     = 60 // seconds
)
