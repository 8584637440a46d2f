// Package dashboard exposes the engine to browser presenters as JSON over
// HTTP plus a WebSocket stream of status events. It never renders markup.
package dashboard
