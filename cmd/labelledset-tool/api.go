package main

import (
	labelledset "github.com/PeaPodTechnologies/LabelledSet"
	"github.com/PeaPodTechnologies/LabelledSet/store"
)

type GroupsResponse struct {
	Data     []store.Entry `json:"data"`
	Continue string        `json:"continue,omitempty"`
	Error    string        `json:"error,omitempty"`
	Refs     []string      `json:"refs,omitempty"`
}

type GroupResponse struct {
	Data  *store.Entry `json:"data,omitempty"`
	Error string       `json:"error,omitempty"`
}

type AssignRequest struct {
	Values    []int64 `json:"values"`
	Overwrite bool    `json:"overwrite,omitempty"`
}

type StatusResponse struct {
	Error  string `json:"error,omitempty"`
	Status string `json:"status,omitempty"`
}

type StatsResponse struct {
	Data  labelledset.Stats `json:"data"`
	Check string            `json:"check"`
}

// Message is one line of log output.
type Message struct {
	Address   string  `json:"address"`
	To        string  `json:"to,omitempty"`
	Subject   string  `json:"subject"`
	Key       string  `json:"key,omitempty"`
	Overwrite bool    `json:"overwrite,omitempty"`
	Values    []int64 `json:"values,omitempty"`
}
