package main

import (
	"context"
	"fmt"
	"strings"

	componentrpc "dashext/internal/modules/loader/adapter/out/rpc"
)

type widget struct{}

func (widget) Describe(_ context.Context, _ *componentrpc.Empty) (*componentrpc.Descriptor, error) {
	return &componentrpc.Descriptor{Name: "reference-widget", Version: "1.0.0", Title: "Reference widget"}, nil
}

func (widget) Render(_ context.Context, in *componentrpc.RenderRequest) (*componentrpc.Frame, error) {
	width := int(in.Width)
	if width < 12 {
		width = 12
	}
	if width > 80 {
		width = 80
	}
	border := "+" + strings.Repeat("-", width-2) + "+"
	label := fmt.Sprintf(" %dx%d ", in.Width, in.Height)
	body := "|" + label + strings.Repeat(" ", max(width-2-len(label), 0)) + "|"
	return &componentrpc.Frame{Content: strings.Join([]string{border, body, border}, "\n")}, nil
}

func main() {
	componentrpc.Serve(widget{})
}
