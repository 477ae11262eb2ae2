package execution

import (
	"strconv"

	"github.com/google/uuid"
)

func NewActionID() string {
	return "act_" + uuid.NewString()
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
