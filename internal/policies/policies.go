// Package policies embeds the row level security policies applied by
// cmd/maintenance deploy-policies. Files are applied in name order.
package policies

import "embed"

//go:embed *.sql
var Files embed.FS
