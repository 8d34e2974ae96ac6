package loader

import "github.com/lbbs/loader/bbsmodule"

// registrar adapts the Registry to bbsmodule.Registrar, the callback a
// shared object's constructor invokes to register (or a destructor invokes
// to unregister) its descriptor.
type registrar struct {
	l *Registry
}

var _ bbsmodule.Registrar = (*registrar)(nil)

func (r *registrar) Register(d bbsmodule.Descriptor) (bbsmodule.Handle, error) {
	h, err := r.l.register(d)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (r *registrar) Unregister(d bbsmodule.Descriptor) error {
	return r.l.unregister(d.Name)
}
