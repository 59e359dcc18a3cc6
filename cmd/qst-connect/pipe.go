package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quicmqtt/qst/transport"
)

// printPipe is the minimal transport.Pipe this demo needs: once started, it
// loops on Stream.Receive and logs every decoded packet. It issues no MQTT
// CONNECT of its own -- qst-connect is a decode/framing probe, not a full
// MQTT client.
type printPipe struct {
	log    *zerolog.Logger
	stream *transport.Stream

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newPrintPipe(log *zerolog.Logger) *printPipe {
	return &printPipe{log: log}
}

func (p *printPipe) Init(s *transport.Stream) error {
	p.stream = s
	return nil
}

func (p *printPipe) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx)
	return nil
}

func (p *printPipe) loop(ctx context.Context) {
	defer close(p.done)
	for {
		pkt, err := p.stream.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Debug().Err(err).Msg("receive ended")
			return
		}
		p.log.Info().
			Hex("header", pkt.Header).
			Int("body_len", len(pkt.Body)).
			Msg("packet decoded")
	}
}

func (p *printPipe) Close() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *printPipe) Stop() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (p *printPipe) Fini() {}
