// Package httputil holds the JSON response helpers shared by the ops handlers.
package httputil
