package apiv1

import (
	"os"
	"regexp"
	"slices"
	"testing"

	"google.golang.org/grpc"
)

var (
	serviceRe = regexp.MustCompile(`(?m)^service (\w+) \{`)
	rpcRe     = regexp.MustCompile(`(?m)^\s+rpc (\w+)\(\w+(?:\.\w+)*\) returns \((stream )?`)
)

// protoRPCs maps each service in the proto file to its unary and streaming rpcs.
func protoRPCs(t *testing.T) map[string][2][]string {
	t.Helper()
	src, err := os.ReadFile("../../proto/tacsync/v1/tacsync.proto")
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string][2][]string)
	locs := serviceRe.FindAllSubmatchIndex(src, -1)
	for i, loc := range locs {
		end := len(src)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		name := "tacsync.v1." + string(src[loc[2]:loc[3]])
		var rpcs [2][]string
		for _, m := range rpcRe.FindAllSubmatch(src[loc[1]:end], -1) {
			if len(m[2]) > 0 {
				rpcs[1] = append(rpcs[1], string(m[1]))
			} else {
				rpcs[0] = append(rpcs[0], string(m[1]))
			}
		}
		out[name] = rpcs
	}
	return out
}

func TestDescriptorsMatchProto(t *testing.T) {
	want := protoRPCs(t)
	descs := []*grpc.ServiceDesc{&ChatServiceDesc, &MessageServiceDesc, &SyncServiceDesc}
	if len(want) != len(descs) {
		t.Fatalf("proto declares %d services, want %d", len(want), len(descs))
	}
	for _, d := range descs {
		rpcs, ok := want[d.ServiceName]
		if !ok {
			t.Errorf("%s missing from proto", d.ServiceName)
			continue
		}
		var methods, streams []string
		for _, m := range d.Methods {
			methods = append(methods, m.MethodName)
		}
		for _, s := range d.Streams {
			streams = append(streams, s.StreamName)
		}
		if !slices.Equal(methods, rpcs[0]) {
			t.Errorf("%s methods = %v, proto has %v", d.ServiceName, methods, rpcs[0])
		}
		if !slices.Equal(streams, rpcs[1]) {
			t.Errorf("%s streams = %v, proto has %v", d.ServiceName, streams, rpcs[1])
		}
	}
}
