package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/goalclock/internal/model"
)

func TestMarshalColumnDeterministic(t *testing.T) {
	a := map[string]string{"b": "2", "a": "<1>"}
	got, err := marshalColumn("params", a)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<1>","b":"2"}`, got)
}

func TestMarshalOptionalNil(t *testing.T) {
	var w *model.WindowSpec
	got, err := marshalOptional("window", w)
	require.NoError(t, err)
	assert.Nil(t, got)

	w = &model.WindowSpec{Duration: time.Hour, Threshold: 1.5, Mode: model.EvalContinuous, Interval: time.Minute}
	got, err = marshalOptional("window", w)
	require.NoError(t, err)
	assert.Equal(t, `{"duration":3600000000000,"interval":60000000000,"mode":"continuous","threshold":1.5}`, got)
}

func TestTimeEncodingZero(t *testing.T) {
	assert.Equal(t, int64(0), toNanos(time.Time{}))
	assert.True(t, fromNanos(0).IsZero())

	at := time.Date(2026, 3, 2, 9, 0, 0, 5, time.UTC)
	assert.True(t, fromNanos(toNanos(at)).Equal(at))
}
