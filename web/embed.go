package web

import "embed"

// StaticFS embeds the browser dashboard shell.
//
//go:embed static/*
var StaticFS embed.FS
