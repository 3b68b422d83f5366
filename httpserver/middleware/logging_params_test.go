/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-blogapi/log"
)

func TestLoggingParams_AddTimeSlot(t *testing.T) {
	lp := LoggingParams{}

	lp.AddTimeSlotInt("rate_limit_ms", 100)
	lp.AddTimeSlotDurationInMs("rate_limit_ms", 2*time.Second)
	lp.AddTimeSlotDurationInMs("db_ms", time.Second)

	require.Equal(t, loggableIntMap{"rate_limit_ms": 2100, "db_ms": 1000}, lp.timeSlots)
}

func TestLoggingParams_ExtendFields(t *testing.T) {
	lp := LoggingParams{}

	lp.ExtendFields(log.String("user_id", "user-1"))
	lp.ExtendFields(log.Int("remaining", 3), log.Bool("dry_run", false))

	require.Len(t, lp.fields, 3)
	require.Equal(t, "user_id", lp.fields[0].Key)
	require.Equal(t, "dry_run", lp.fields[2].Key)
}
