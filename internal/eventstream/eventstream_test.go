/*
Copyright 2022. projectsveltos.io. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package eventstream_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lsst-sqre/nublado-controller/internal/eventstream"
)

var _ = Describe("Log", func() {
	It("replays the full sequence to a cursor attached before anything is published", func() {
		log := eventstream.NewLog()
		cursor := log.NewCursor()

		log.Append(eventstream.Event{Kind: eventstream.Info, Message: "one", Progress: 2})
		log.Append(eventstream.Event{Kind: eventstream.Info, Message: "two", Progress: 45})
		log.Append(eventstream.Event{Kind: eventstream.Complete, Message: "done", Progress: 100})

		ctx := context.Background()
		ev, ok := cursor.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Message).To(Equal("one"))

		ev, ok = cursor.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Message).To(Equal("two"))

		ev, ok = cursor.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Kind).To(Equal(eventstream.Complete))

		_, ok = cursor.Next(ctx)
		Expect(ok).To(BeFalse())
	})

	It("replays the full sequence to a cursor attached after the stream terminated", func() {
		log := eventstream.NewLog()
		log.Append(eventstream.Event{Kind: eventstream.Info, Message: "one", Progress: 2})
		log.Append(eventstream.Event{Kind: eventstream.Failed, Message: "nope", Progress: 10})

		cursor := log.NewCursor()
		ctx := context.Background()

		ev, ok := cursor.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Message).To(Equal("one"))

		ev, ok = cursor.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Kind).To(Equal(eventstream.Failed))

		_, ok = cursor.Next(ctx)
		Expect(ok).To(BeFalse())
	})

	It("delivers live events to a cursor blocked waiting for them", func() {
		log := eventstream.NewLog()
		cursor := log.NewCursor()

		var wg sync.WaitGroup
		wg.Add(1)
		var got eventstream.Event
		go func() {
			defer wg.Done()
			ev, ok := cursor.Next(context.Background())
			Expect(ok).To(BeTrue())
			got = ev
		}()

		time.Sleep(20 * time.Millisecond)
		log.Append(eventstream.Event{Kind: eventstream.Info, Message: "live", Progress: 50})
		wg.Wait()
		Expect(got.Message).To(Equal("live"))
	})

	It("lets independent cursors read the same log without affecting each other", func() {
		log := eventstream.NewLog()
		a := log.NewCursor()
		b := log.NewCursor()

		log.Append(eventstream.Event{Kind: eventstream.Info, Message: "one"})

		ctx := context.Background()
		ev, ok := a.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Message).To(Equal("one"))
		a.Close()

		log.Append(eventstream.Event{Kind: eventstream.Complete, Message: "done"})

		ev, ok = b.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Message).To(Equal("one"))
		ev, ok = b.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(ev.Message).To(Equal("done"))
	})

	It("unblocks a cursor when its context is cancelled", func() {
		log := eventstream.NewLog()
		cursor := log.NewCursor()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, ok := cursor.Next(ctx)
		Expect(ok).To(BeFalse())
	})

	It("lets Close terminate a log with no terminal event of its own", func() {
		log := eventstream.NewLog()
		cursor := log.NewCursor()
		log.Append(eventstream.Event{Kind: eventstream.Info, Message: "one"})
		log.Close()

		ctx := context.Background()
		_, ok := cursor.Next(ctx)
		Expect(ok).To(BeTrue())
		_, ok = cursor.Next(ctx)
		Expect(ok).To(BeFalse())
	})
})
