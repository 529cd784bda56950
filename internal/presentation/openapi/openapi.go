// Package openapi 埋め込みのOpenAPI仕様を提供する
package openapi

import _ "embed"

// Spec OpenAPI仕様のYAMLドキュメント
//
//go:embed openapi.yaml
var Spec []byte
