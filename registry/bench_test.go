package registry

import "testing"

func benchRegistry(b *testing.B, opts Options) *Registry {
	b.Helper()
	opts.MisuseDelay = -1
	r := New(opts)
	if err := r.Init(); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { r.Shutdown() })
	return r
}

func BenchmarkCreateRelease(b *testing.B) {
	r := benchRegistry(b, Options{})
	b.ReportAllocs()
	for b.Loop() {
		ref, err := r.Create(64, TypeChannel, "bench", nil)
		if err != nil {
			b.Fatal(err)
		}
		r.Release(&ref)
	}
}

func BenchmarkRetainRelease(b *testing.B) {
	for _, tc := range []struct {
		name string
		opts Options
	}{
		{"atomic", Options{}},
		{"emulated", Options{EmulateAtomics: true}},
	} {
		b.Run(tc.name, func(b *testing.B) {
			r := benchRegistry(b, tc.opts)
			ref, err := r.Create(64, TypeDevice, "bench", nil)
			if err != nil {
				b.Fatal(err)
			}
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					held := r.Retain(ref)
					r.Release(&held)
				}
			})
		})
	}
}
