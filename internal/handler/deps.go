package handler

import (
	"chatrelay/internal/app/relay"
	"chatrelay/internal/app/store"
	"chatrelay/internal/configs"
)

// AppDeps bundles the collaborators the HTTP handlers need.
type AppDeps struct {
	Hub    *relay.Hub
	Config *configs.AppConfig
	Store  store.Store
}
