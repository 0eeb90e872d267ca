package main

//go:generate swag init -g cmd/server/main.go -o docs

// @title           Probable Site API
// @version         0.1.0
// @description     Lead capture, analytics ingestion, market shaping, and chat for the Probable marketing site.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
