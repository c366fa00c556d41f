/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package api

import (
	"encoding/json"
	"net/http"

	"github.com/sapcc/go-bits/logg"
)

// Handler allows to construct HTTP handlers by chained method calls describing
// the sequence of actions taken.
type Handler struct {
	steps []HandlerStep
}

// Do creates a Handler with the given steps.
func Do(steps ...HandlerStep) Handler {
	return Handler{steps: steps}
}

// ServeHTTP implements the http.Handler interface.
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	i := Interaction{
		Req:    r,
		writer: w,
	}
	for _, step := range h.steps {
		step(&i)
		if i.writer == nil {
			return
		}
	}
}

// HandlerStep is a single step executed by a handler. When a handler step
// renders a result, it shall set i.writer = nil to ensure that the remaining
// steps do not get executed.
type HandlerStep func(i *Interaction)

// Interaction describes a single invocation of Handler.ServeHTTP().
type Interaction struct {
	Req    *http.Request
	writer http.ResponseWriter
}

// WriteJSON renders a JSON response.
func (i *Interaction) WriteJSON(code int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		i.WriteError(err.Error(), http.StatusInternalServerError)
		return
	}
	i.writer.Header().Set("Content-Type", "application/json")
	i.writer.WriteHeader(code)
	_, err = i.writer.Write(append(buf, '\n'))
	if err != nil {
		logg.Error("cannot write response for %s %s: %s", i.Req.Method, i.Req.URL.Path, err.Error())
	}
	i.writer = nil
}

// WriteError renders an error message as a JSON response.
func (i *Interaction) WriteError(msg string, code int) {
	i.WriteJSON(code, map[string]string{"error": msg})
}
