// Пакет openapi — встроенный OpenAPI-контракт LMS Module.
// Документ используется middleware валидации запросов.
package openapi

import _ "embed"

// Spec — OpenAPI 3.0 документ в формате YAML.
//
//go:embed openapi.yaml
var Spec []byte
