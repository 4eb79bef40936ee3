// Package apiclient talks to the REST side of the chat backend: durable
// message persistence, chat history, friend-list management, and profile
// lookup. The realtime channel stays authoritative for the live session;
// these calls back it with durable state.
package apiclient
