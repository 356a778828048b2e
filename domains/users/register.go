package users

import "keystone/domain"

func init() {
	domain.Register(domain.Registration{
		Name:       "users",
		NewRouter:  NewRouter,
		Migrations: Migrations(),
	})
}
