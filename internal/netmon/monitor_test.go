package netmon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckNow_OnlineFast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New(srv.URL, time.Minute, time.Second)
	q := m.CheckNow(context.Background())

	assert.Equal(t, QualityFast, q)
	assert.True(t, m.IsOnline())
}

func TestCheckNow_Offline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	m := New(srv.URL, time.Minute, 100*time.Millisecond)
	q := m.CheckNow(context.Background())

	assert.Equal(t, QualityOffline, q)
	assert.False(t, m.IsOnline())
}

func TestCheckNow_SlowLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(650 * time.Millisecond)
	}))
	defer srv.Close()

	m := New(srv.URL, time.Minute, 2*time.Second)
	q := m.CheckNow(context.Background())

	assert.Equal(t, QualitySlow, q)
	assert.True(t, m.IsOnline())
}

func TestTransitionCallbacks_FireOncePerFlip(t *testing.T) {
	m := New("", time.Minute, time.Second)

	var onlineFires, offlineFires atomic.Int32
	m.OnOnline(func() { onlineFires.Add(1) })
	m.OnOffline(func() { offlineFires.Add(1) })

	m.SetOnline(false)
	m.SetOnline(false)
	m.SetOnline(false)
	assert.Equal(t, int32(1), offlineFires.Load())

	m.SetOnline(true)
	m.SetOnline(true)
	assert.Equal(t, int32(1), onlineFires.Load())
}

func TestUnsubscribeStopsCallbacks(t *testing.T) {
	m := New("", time.Minute, time.Second)

	var fires atomic.Int32
	unsubscribe := m.OnOffline(func() { fires.Add(1) })

	m.SetOnline(false)
	assert.Equal(t, int32(1), fires.Load())

	unsubscribe()
	m.SetOnline(true)
	m.SetOnline(false)
	assert.Equal(t, int32(1), fires.Load())
}

func TestBatchSizeHint(t *testing.T) {
	m := New("", time.Minute, time.Second)

	assert.Equal(t, 50, m.BatchSizeHint(50))

	m.mu.Lock()
	m.quality = QualitySlow
	m.mu.Unlock()

	assert.Equal(t, 25, m.BatchSizeHint(50))
	assert.Equal(t, 1, m.BatchSizeHint(1))
}

func TestSetOnline_QualityPessimistic(t *testing.T) {
	m := New("", time.Minute, time.Second)

	m.SetOnline(false)
	assert.Equal(t, QualityOffline, m.Quality())

	m.SetOnline(true)
	assert.Equal(t, QualityModerate, m.Quality())
}
