package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"viammo.app/tripscan/common/logger"
)

var _ = Describe("TraceHandler", func() {
	var (
		buf *bytes.Buffer
		log *slog.Logger
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		log = slog.New(logger.NewTraceHandler(slog.NewJSONHandler(buf, nil)))
	})

	decode := func() map[string]any {
		var line map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &line)).To(Succeed())
		return line
	}

	It("adds the fields carried by the context", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{ScanID: logger.Ptr(int64(42))})
		ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("classify"), EmailID: logger.Ptr("m1")})

		log.InfoContext(ctx, "classified")

		line := decode()
		Expect(line["scan_id"]).To(BeEquivalentTo(42))
		Expect(line["stage"]).To(Equal("classify"))
		Expect(line["email_id"]).To(Equal("m1"))
		Expect(line).NotTo(HaveKey("trace_id"))
	})

	It("lets later fields override earlier ones", func() {
		ctx := logger.WithLogFields(context.Background(), logger.LogFields{Stage: logger.Ptr("extract")})
		ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("grouping"), Component: "tripscan.pipeline"})

		log.InfoContext(ctx, "folding")

		line := decode()
		Expect(line["stage"]).To(Equal("grouping"))
		Expect(line["component"]).To(Equal("tripscan.pipeline"))
	})
})

var _ = Describe("Truncate", func() {
	It("keeps short strings and cuts long ones", func() {
		Expect(logger.Truncate("hotel", 10)).To(Equal("hotel"))
		Expect(logger.Truncate("reservation", 7)).To(Equal("reserva..."))
	})
})
