package observability

import "errors"

var errBatchFailed = errors.New("batch failed")
