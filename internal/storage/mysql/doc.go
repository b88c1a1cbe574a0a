// Package mysql persists conversation transcripts. It ships a JSON-lines file
// repository for single-node deployments and a MySQL repository that shares
// its connection pool helpers and embedded schema migrations with the task
// store.
package mysql
