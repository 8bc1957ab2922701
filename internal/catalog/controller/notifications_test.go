package controller

import (
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tair/product-console/internal/catalog/domain"
	"github.com/tair/product-console/internal/catalog/notify"
)

func (s *ControllerSuite) push(event notify.Event) {
	s.Require().NoError(s.ctrl.HandleEvent(s.ctx, event))
}

func (s *ControllerSuite) TestPushProgressIsMonotonic() {
	s.push(notify.Event{Kind: notify.EventProgress, ProductIndex: 0, Field: domain.FieldShort, Progress: 30, Status: domain.PhaseGenerating})
	s.push(notify.Event{Kind: notify.EventProgress, ProductIndex: 0, Field: domain.FieldShort, Progress: 10, Status: domain.PhaseGenerating})

	st := s.state(0, domain.FieldShort)
	s.Equal(domain.PhaseGenerating, st.Phase)
	s.Equal(30, st.Percent)
	s.Equal(30, s.row(0).Short.Percent)
}

func (s *ControllerSuite) TestPushContentDuringGenerate() {
	started := make(chan struct{})
	gate := make(chan struct{})
	s.backend.generate = func(string, string) (domain.Descriptions, error) {
		close(started)
		<-gate
		return domain.Descriptions{Short: "from response", Long: "L"}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.ctrl.Generate(s.ctx, 0)
	}()
	<-started

	s.push(notify.Event{Kind: notify.EventProgress, SKU: "A", Field: domain.FieldShort, Progress: 60})
	s.Equal(60, s.state(0, domain.FieldShort).Percent)

	content := notify.Event{Kind: notify.EventContent, SKU: "A", Field: domain.FieldShort, Content: "from push"}
	s.push(content)
	s.Equal(domain.PhaseCompleted, s.state(0, domain.FieldShort).Phase)
	s.Equal(100, s.state(0, domain.FieldShort).Percent)

	close(gate)
	<-done

	p := s.product(0)
	s.Equal("from push", p.ShortDescription, "pushed terminal result wins for its cycle")
	s.Equal("L", p.LongDescription)
	s.Equal(domain.PhaseCompleted, s.state(0, domain.FieldLong).Phase)
}

func (s *ControllerSuite) TestDuplicateContentEventIsNoop() {
	event := notify.Event{Kind: notify.EventContent, ProductIndex: 1, Field: domain.FieldLong, Content: "L1"}

	s.push(event)
	first := s.ctrl.Products()
	firstState := s.state(1, domain.FieldLong)

	s.push(event)
	s.Equal(first, s.ctrl.Products())
	s.Equal(firstState, s.state(1, domain.FieldLong))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.eventsTotal.WithLabelValues(notify.EventContent, outcomeStale)))
}

func (s *ControllerSuite) TestStalePushCompletionIgnored() {
	started := make(chan struct{})
	gate := make(chan struct{})
	first := true
	s.backend.regenerate = func(string, string, domain.FieldType) (string, error) {
		if first {
			first = false
			close(started)
			<-gate
		}
		return "response", nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.ctrl.Regenerate(s.ctx, 0, domain.FieldLong)
	}()
	<-started
	oldSeq := s.state(0, domain.FieldLong).Seq

	// a second cycle starts and finishes while the first is still out
	_, err := s.ctrl.Regenerate(s.ctx, 0, domain.FieldLong)
	s.Require().NoError(err)
	current := s.state(0, domain.FieldLong)
	s.Greater(current.Seq, oldSeq)

	s.push(notify.Event{Kind: notify.EventError, ProductIndex: 0, Field: domain.FieldLong, Message: "late", Seq: oldSeq})
	s.push(notify.Event{Kind: notify.EventContent, ProductIndex: 0, Field: domain.FieldLong, Content: "late", Seq: oldSeq})
	close(gate)
	<-done

	s.Equal(current, s.state(0, domain.FieldLong))
	s.Equal("response", s.product(0).LongDescription)
	s.Empty(s.recorder.Alerts())
}

func (s *ControllerSuite) TestPushErrorAllFailsBothDescriptions() {
	started := make(chan struct{})
	gate := make(chan struct{})
	s.backend.generate = func(string, string) (domain.Descriptions, error) {
		close(started)
		<-gate
		return domain.Descriptions{Short: "S", Long: "L"}, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.ctrl.Generate(s.ctx, 1)
	}()
	<-started

	s.push(notify.Event{Kind: notify.EventError, ProductIndex: 1, Field: domain.FieldAll, Message: "quota exceeded"})
	for _, f := range []domain.FieldType{domain.FieldShort, domain.FieldLong} {
		st := s.state(1, f)
		s.Equal(domain.PhaseError, st.Phase)
		s.Equal(100, st.Percent)
	}
	alerts := s.recorder.Alerts()
	s.Require().Len(alerts, 1)
	s.Equal("quota exceeded", alerts[0].Message)

	// the late response cannot revive either field
	close(gate)
	<-done
	s.Equal(domain.PhaseError, s.state(1, domain.FieldShort).Phase)
	s.Empty(s.product(1).ShortDescription)
	s.False(s.row(1).ConfirmButton.Disabled)
}

func (s *ControllerSuite) TestPushForOtherFarmIgnored() {
	s.push(notify.Event{Kind: notify.EventContent, FarmID: "F9", ProductIndex: 0, Field: domain.FieldShort, Content: "x"})

	s.Empty(s.product(0).ShortDescription)
	s.Equal(domain.PhaseIdle, s.state(0, domain.FieldShort).Phase)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.eventsTotal.WithLabelValues(notify.EventContent, outcomeOtherFarm)))
}

func (s *ControllerSuite) TestPushUnknownTargetsDropped() {
	s.push(notify.Event{Kind: notify.EventContent, ProductIndex: 7, Field: domain.FieldShort, Content: "x"})
	s.push(notify.Event{Kind: notify.EventContent, SKU: "nope", Field: domain.FieldShort, Content: "x"})
	s.push(notify.Event{Kind: notify.EventContent, ProductIndex: 0, Field: "video", Content: "x"})
	s.push(notify.Event{Kind: notify.EventProgress, ProductIndex: 0, Field: domain.FieldAll, Progress: 5})

	for _, p := range s.ctrl.Products() {
		s.Empty(p.ShortDescription)
	}
	s.Equal(4.0, testutil.ToFloat64(s.metrics.eventsTotal.WithLabelValues(notify.EventContent, outcomeUnknown))+
		testutil.ToFloat64(s.metrics.eventsTotal.WithLabelValues(notify.EventProgress, outcomeUnknown)))
}

func (s *ControllerSuite) TestPushCorrelatesBySKUAfterReorder() {
	s.backend.products["F1"] = []domain.Product{{SKU: "B"}, {SKU: "A"}}
	_, err := s.ctrl.SelectFarm(s.ctx, "F1")
	s.Require().NoError(err)

	// position 0 was A at render time of the sender; SKU wins
	s.push(notify.Event{Kind: notify.EventContent, SKU: "A", ProductIndex: 0, Field: domain.FieldShort, Content: "for A"})

	s.Empty(s.product(0).ShortDescription)
	s.Equal("for A", s.product(1).ShortDescription)
	s.Equal(domain.PhaseCompleted, s.state(1, domain.FieldShort).Phase)
}

func (s *ControllerSuite) TestPushImageContentBustsPreview() {
	s.push(notify.Event{Kind: notify.EventContent, ProductIndex: 0, Field: domain.FieldImages, Content: "/img/a.png"})

	s.Equal("/img/a.png", s.product(0).ImagePath)
	s.Equal("/img/a.png?t=1700000000000", s.row(0).ImageSrc)
}

func (s *ControllerSuite) TestPushContentIgnoredForConfirmedProduct() {
	s.Require().NoError(s.ctrl.Confirm(s.ctx, 0))

	s.push(notify.Event{Kind: notify.EventContent, ProductIndex: 0, Field: domain.FieldShort, Content: "x"})
	s.Empty(s.product(0).ShortDescription)
}

func (s *ControllerSuite) TestPushContentReplacesCompletedField() {
	_, err := s.ctrl.Generate(s.ctx, 0)
	s.Require().NoError(err)
	before := s.state(0, domain.FieldShort)
	s.Require().Equal(domain.PhaseCompleted, before.Phase)

	// late progress from the finished cycle does not reopen the bar
	s.push(notify.Event{Kind: notify.EventProgress, ProductIndex: 0, Field: domain.FieldShort, Progress: 50})
	s.Equal(before, s.state(0, domain.FieldShort))

	s.push(notify.Event{Kind: notify.EventContent, SKU: "A", Field: domain.FieldShort, Content: "rewritten by backend"})
	st := s.state(0, domain.FieldShort)
	s.Equal(domain.PhaseCompleted, st.Phase)
	s.Equal(100, st.Percent)
	s.Greater(st.Seq, before.Seq)
	s.Equal("rewritten by backend", s.product(0).ShortDescription)
	s.Equal("L", s.product(0).LongDescription)
}

func (s *ControllerSuite) TestPushContentReplacesSettledField() {
	s.backend.products["F1"] = []domain.Product{{SKU: "A", ShortDescription: "saved"}}
	_, err := s.ctrl.SelectFarm(s.ctx, "F1")
	s.Require().NoError(err)
	s.Require().Equal(domain.PhaseCompleted, s.state(0, domain.FieldShort).Phase)

	s.push(notify.Event{Kind: notify.EventContent, ProductIndex: 0, Field: domain.FieldShort, Content: "saved"})
	s.Equal(1.0, testutil.ToFloat64(s.metrics.eventsTotal.WithLabelValues(notify.EventContent, outcomeStale)))

	s.push(notify.Event{Kind: notify.EventContent, ProductIndex: 0, Field: domain.FieldShort, Content: "fresh"})
	s.Equal("fresh", s.product(0).ShortDescription)
	s.Equal(domain.PhaseCompleted, s.state(0, domain.FieldShort).Phase)
}
