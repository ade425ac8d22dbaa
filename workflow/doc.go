// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package workflow implements the validated workflow graph and its runtime.

A workflow is a directed acyclic graph of typed nodes (start, llm, tool,
code, http_request, template_transform, dataset_retrieval,
question_classifier, iteration, end) connected by edges. WorkflowConfig
validates the proposed graph up front: exactly one START (in-degree 0) and
one END (out-degree 0), unique ids and titles, edges with existing and
type-matching endpoints, no duplicate connections, connectivity from START
and acyclicity (Kahn). NewDraftWorkflowConfig is the lenient entry point
used while a graph is still being drawn: bad nodes/edges are dropped and
logged instead of failing the whole graph.

Runtime compiles a validated config into executors (one per node, closed
dispatch over the NodeData union) and drives traversal over shared
WorkflowState: inputs/outputs merge as right-biased map unions, node
results append in completion order. Node execution is sequential per run;
question-classifier branches fire a single outgoing handle and the
unselected subtrees are skipped. The iteration node composes the runtime
recursively, running a separately compiled published sub-workflow once per
list element.

Variable resolution is best-effort by design: a reference to a node that
never executed (for example on a skipped branch) resolves to the declared
type's zero value, never an error.
*/
package workflow
