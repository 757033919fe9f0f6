package devserver

import "time"

// Seed fixtures. The password for every seeded login is SeedPassword.
const (
	SeedPassword = "password"

	// Owner of ShopFadeFactory, barber at ShopSharpCuts, owner of the
	// expired ShopOldTown.
	SeedOwnerUsername = "ana"
	SeedOwnerID       = "u-ana"

	// Barber at ShopSharpCuts only.
	SeedBarberUsername = "leo"
	SeedBarberID       = "b-leo"

	// Customer with no shops.
	SeedCustomerUsername = "kim"
	SeedCustomerID       = "u-kim"

	ShopFadeFactory = 7
	ShopSharpCuts   = 9
	ShopOldTown     = 12

	ServiceHaircut = "svc-cut"
	ServiceBeard   = "svc-beard"
	ServiceFull    = "svc-full"
)

func seed(s *store) {
	s.addCustomer(Customer{
		ID: SeedOwnerID, Username: SeedOwnerUsername, Password: SeedPassword,
		Name: "Ana Diaz", Email: "ana@example.com", Role: "Customer", Phone: "+1 555 0100",
	})
	s.addCustomer(Customer{
		ID: SeedBarberID, Username: SeedBarberUsername, Password: SeedPassword,
		Name: "Leo Park", Email: "leo@example.com", Role: "Barber", Phone: "+1 555 0101",
	})
	s.addCustomer(Customer{
		ID: SeedCustomerID, Username: SeedCustomerUsername, Password: SeedPassword,
		Name: "Kim Lee", Email: "kim@example.com", Role: "Customer",
	})

	s.addShop(Shop{
		ID: ShopFadeFactory, Name: "Fade Factory", Slug: "fade-factory", Subdomain: "fadefactory",
		SubscriptionStatus: SubscriptionActive, IsActive: true, OwnerID: SeedOwnerID,
	})
	s.addShop(Shop{
		ID: ShopSharpCuts, Name: "Sharp Cuts", Slug: "sharp-cuts", Subdomain: "sharpcuts",
		SubscriptionStatus: SubscriptionTrial, IsActive: true, OwnerID: "u-other",
		Staff: map[string]string{SeedOwnerID: "Barber", SeedBarberID: "Barber"},
	})
	s.addShop(Shop{
		ID: ShopOldTown, Name: "Old Town Barbers", Slug: "old-town", Subdomain: "oldtown",
		SubscriptionStatus: SubscriptionExpired, IsActive: true, OwnerID: SeedOwnerID,
	})

	s.addService(Service{ID: ServiceHaircut, Name: "Haircut", Duration: 30 * time.Minute, Price: 25})
	s.addService(Service{ID: ServiceBeard, Name: "Beard Trim", Duration: 30 * time.Minute, Price: 15})
	s.addService(Service{ID: ServiceFull, Name: "Cut and Beard", Duration: time.Hour, Price: 35})
}
