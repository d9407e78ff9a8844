package main

import (
	"fmt"

	"github.com/ahalstead/caseng/workflow"
)

type registerer interface {
	RegisterDefinition(def *workflow.Definition) error
}

// registerDefinitions registers the built-in workflow definitions.
// Work items in these definitions are completed through the API.
func registerDefinitions(r registerer) error {
	for _, build := range []func() (*workflow.Definition, error){
		approvalDefinition,
		fanOutDefinition,
	} {
		def, err := build()
		if err != nil {
			return fmt.Errorf("building %s definition: %w", def.Name, err)
		}
		if err = r.RegisterDefinition(def); err != nil {
			return fmt.Errorf("registering %s definition: %w", def.Name, err)
		}
	}
	return nil
}

func buildDefinition(d *workflow.Definition, tasks []*workflow.Task, flows []*workflow.Flow) (*workflow.Definition, error) {
	for _, task := range tasks {
		if err := d.AddTask(task); err != nil {
			return d, err
		}
	}
	for _, flow := range flows {
		if err := d.AddFlow(flow); err != nil {
			return d, err
		}
	}
	return d, nil
}

// approvalDefinition routes a request to approval or rejection based
// on the "approved" case variable set when the review task completes.
func approvalDefinition() (*workflow.Definition, error) {
	d := workflow.NewDefinition("approval")
	d.Input, d.Output = "submit", "done"
	return buildDefinition(d,
		[]*workflow.Task{
			{ID: "submit", Name: "Submit request"},
			{ID: "review", Name: "Review request", Split: workflow.SplitXOR},
			{ID: "approve", Name: "Record approval"},
			{ID: "reject", Name: "Record rejection"},
			{ID: "done", Name: "Done", Join: workflow.JoinXOR},
		},
		[]*workflow.Flow{
			{From: "submit", To: "review"},
			{From: "review", To: "approve", Guard: func(data *workflow.Data) (bool, error) {
				v, _ := data.Get("approved")
				b, _ := v.(bool)
				return b, nil
			}},
			{From: "review", To: "reject", Default: true},
			{From: "approve", To: "done"},
			{From: "reject", To: "done"},
		},
	)
}

// fanOutDefinition runs two tasks in parallel and synchronizes before
// finishing.
func fanOutDefinition() (*workflow.Definition, error) {
	d := workflow.NewDefinition("fanout")
	d.Input, d.Output = "start", "finish"
	return buildDefinition(d,
		[]*workflow.Task{
			{ID: "start", Name: "Start", Split: workflow.SplitAND},
			{ID: "left", Name: "Left branch"},
			{ID: "right", Name: "Right branch"},
			{ID: "finish", Name: "Finish", Join: workflow.JoinAND},
		},
		[]*workflow.Flow{
			{From: "start", To: "left"},
			{From: "start", To: "right"},
			{From: "left", To: "finish"},
			{From: "right", To: "finish"},
		},
	)
}
