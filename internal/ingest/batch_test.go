package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/smartystreets/goconvey/convey"

	"github.com/your-org/eventface/internal/storage"
)

// stubEmbedder maps image bytes to canned results.
type stubEmbedder struct {
	faces map[string][][]float32
	calls int
}

func (s *stubEmbedder) Embed(ctx context.Context, image []byte) ([][]float32, error) {
	s.calls++
	faces, ok := s.faces[string(image)]
	if !ok {
		return nil, errors.New("cannot decode image")
	}
	return faces, nil
}

func bytesItem(ref, content string) Item {
	return Item{
		PhotoRef: ref,
		Load: func(ctx context.Context) ([]byte, error) {
			return []byte(content), nil
		},
	}
}

func TestRunnerRun(t *testing.T) {
	convey.Convey("Given a runner over an in-memory store", t, func() {
		ctx := context.Background()
		store := storage.NewMemoryStore()
		ev, _ := store.CreateEvent(ctx, "Gala", nil)
		emb := &stubEmbedder{faces: map[string][][]float32{
			"one":  {face(1)},
			"two":  {face(1), face(0, 1)},
			"none": {},
		}}
		runner := NewRunner(NewPipeline(store, store, testDim), emb, nil)

		var progress []Progress
		record := func(p Progress) { progress = append(progress, p) }

		convey.Convey("When one of three items cannot be embedded", func() {
			items := []Item{
				bytesItem("a.jpg", "one"),
				bytesItem("b.jpg", "garbage"),
				bytesItem("c.jpg", "two"),
			}
			m := runner.Run(ctx, ev.ID, items, record)

			convey.Convey("Then the other two are ingested and the failure is listed", func() {
				convey.So(m.Attempted, convey.ShouldEqual, 3)
				convey.So(m.Succeeded, convey.ShouldHaveLength, 2)
				convey.So(m.Failed, convey.ShouldHaveLength, 1)
				convey.So(m.Failed[0].Index, convey.ShouldEqual, 1)
				convey.So(m.Failed[0].PhotoRef, convey.ShouldEqual, "b.jpg")
				convey.So(m.Failed[0].Stage, convey.ShouldEqual, StageEmbed)

				n, _ := store.CountVectors(ctx, ev.ID)
				convey.So(n, convey.ShouldEqual, 3)
			})

			convey.Convey("And progress advances by one per item up to (3,3)", func() {
				convey.So(progress, convey.ShouldHaveLength, 3)
				for i, p := range progress {
					convey.So(p.Completed, convey.ShouldEqual, i+1)
					convey.So(p.Total, convey.ShouldEqual, 3)
				}
				convey.So(progress[1].Failure, convey.ShouldNotBeNil)
				convey.So(progress[2].Succeeded, convey.ShouldEqual, 2)
			})
		})

		convey.Convey("When items are processed", func() {
			var order []string
			load := func(ref string) Item {
				return Item{PhotoRef: ref, Load: func(ctx context.Context) ([]byte, error) {
					order = append(order, ref)
					return []byte("one"), nil
				}}
			}
			runner.Run(ctx, ev.ID, []Item{load("1"), load("2"), load("3")}, nil)

			convey.Convey("Then they run in submission order", func() {
				convey.So(order, convey.ShouldResemble, []string{"1", "2", "3"})
			})
		})

		convey.Convey("When loading fails", func() {
			bad := Item{PhotoRef: "gone.jpg", Load: func(ctx context.Context) ([]byte, error) {
				return nil, errors.New("object not found")
			}}
			m := runner.Run(ctx, ev.ID, []Item{bad}, record)

			convey.Convey("Then the item fails at the load stage without calling the embedder", func() {
				convey.So(m.Failed, convey.ShouldHaveLength, 1)
				convey.So(m.Failed[0].Stage, convey.ShouldEqual, StageLoad)
				convey.So(emb.calls, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When a photo has no faces", func() {
			m := runner.Run(ctx, ev.ID, []Item{bytesItem("empty.jpg", "none")}, record)

			convey.Convey("Then it succeeds with zero faces", func() {
				convey.So(m.Succeeded, convey.ShouldHaveLength, 1)
				convey.So(m.Succeeded[0].Faces, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the event does not exist", func() {
			m := runner.Run(ctx, uuid.New(), []Item{bytesItem("a.jpg", "one")}, record)

			convey.Convey("Then the item fails at the ingest stage", func() {
				convey.So(m.Failed, convey.ShouldHaveLength, 1)
				convey.So(m.Failed[0].Stage, convey.ShouldEqual, StageIngest)
			})
		})

		convey.Convey("When the batch is empty", func() {
			m := runner.Run(ctx, ev.ID, nil, record)

			convey.Convey("Then nothing is reported", func() {
				convey.So(m.Attempted, convey.ShouldEqual, 0)
				convey.So(m.Succeeded, convey.ShouldNotBeNil)
				convey.So(m.Failed, convey.ShouldNotBeNil)
				convey.So(progress, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the context is cancelled after the first item", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()
			items := []Item{
				bytesItem("a.jpg", "one"),
				bytesItem("b.jpg", "one"),
				bytesItem("c.jpg", "one"),
			}
			m := runner.Run(cctx, ev.ID, items, func(p Progress) {
				record(p)
				if p.Completed == 1 {
					cancel()
				}
			})

			convey.Convey("Then the rest are recorded as cancelled and progress still completes", func() {
				convey.So(m.Succeeded, convey.ShouldHaveLength, 1)
				convey.So(m.Failed, convey.ShouldHaveLength, 2)
				for _, f := range m.Failed {
					convey.So(f.Stage, convey.ShouldEqual, StageCancelled)
				}
				convey.So(progress[len(progress)-1].Completed, convey.ShouldEqual, 3)

				n, _ := store.CountVectors(ctx, ev.ID)
				convey.So(n, convey.ShouldEqual, 1)
			})
		})
	})
}
