// Package api exposes the file pipeline over HTTP. Upload and delete routes
// hand requests to the producer and answer with either the finished result
// or a job handle that can be polled.
package api
