// Package web holds static assets served by the API, embedded at build time.
package web

import _ "embed"

// WidgetJS is the embeddable chat widget script served at /chat/widget.js.
//
//go:embed widget.js
var WidgetJS []byte
