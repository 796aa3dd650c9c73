package server

import "time"

const (
	defaultFogUpdateInterval    = time.Second
	defaultSaveInterval         = 30 * time.Second
	defaultPlayerUpdateInterval = time.Second
	defaultBakeTimeout          = 10 * time.Minute
)
