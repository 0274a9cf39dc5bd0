package client

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// The JSON conveniences are shared by both transports and keep the
// façade's non-throwing contract: a parse failure is logged and
// reported as absent or false, never propagated.

func getJSON(c Client, key string, into any, lg logrus.FieldLogger) bool {
	data := c.Get(key)
	if data == nil {
		return false
	}

	if err := json.Unmarshal(data, into); err != nil {
		lg.WithError(fmt.Errorf("%w: %v", ErrDecodeFailed, err)).WithField("key", key).Warn("get json failed")
		return false
	}

	return true
}

func setJSON(c Client, key string, value any, lg logrus.FieldLogger) bool {
	data, err := json.Marshal(value)
	if err != nil {
		lg.WithError(fmt.Errorf("%w: %v", ErrDecodeFailed, err)).WithField("key", key).Warn("set json failed")
		return false
	}

	return c.Set(key, data)
}
